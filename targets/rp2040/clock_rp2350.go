//go:build rp2350

package main

import "gostep/targets/rp2040/hwtimer"

const chip = hwtimer.RP2350
