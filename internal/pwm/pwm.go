// Package pwm drives LED brightness through hardware PWM channels.
package pwm

import "errors"

// MaxDuty is the full-on duty level.
const MaxDuty = 65535

var ErrClosed = errors.New("pwm: channel closed")
