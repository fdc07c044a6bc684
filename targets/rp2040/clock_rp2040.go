//go:build rp2040

package main

import "gostep/targets/rp2040/hwtimer"

const chip = hwtimer.RP2040
