// Package gpio requests individual GPIO lines through the Linux GPIO
// character device (/dev/gpiochipN). Buttons are inputs with pull-up bias;
// the buzzer is a plain digital output.
package gpio
