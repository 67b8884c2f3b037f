// Package paging maps a dialed station number onto the four selective-call
// tones that page a mobile station.
package paging

import (
	"errors"
	"fmt"
)

const (
	// Tones is the number of paging tones per station
	Tones = 4
	// StationDigits is the length of a station number without prefix
	StationDigits = 5
	// PrefixDigits is dropped from the long number form
	PrefixDigits = 2
	// BaseFrequency and ToneSpacing place tone n at BaseFrequency + n*ToneSpacing
	BaseFrequency = 337.5
	ToneSpacing   = 15.0
	// MaxTone is the highest tone number, three decades of ten
	MaxTone = 30
)

var (
	// ErrInvalidNumber indicates the number is not 5 or 7 decimal digits
	ErrInvalidNumber = errors.New("station number must have 5 or 7 digits")
	// ErrDuplicateTone indicates two digits select the same paging tone
	ErrDuplicateTone = errors.New("paging tones coincide")
)

// DuplicateToneError names the two digit positions that would page with the
// same tone.
type DuplicateToneError struct {
	Number string
	// First and Second are 1-based digit positions within the station number
	First, Second int
	Tone          int
}

func (e *DuplicateToneError) Error() string {
	return fmt.Sprintf("digit #%d and #%d of station %s select the same paging tone %d",
		e.First, e.Second, e.Number, e.Tone)
}

func (e *DuplicateToneError) Unwrap() error {
	return ErrDuplicateTone
}

// groups assigns a decade (1..3) to each of the four tone digits, selected by
// the group digit that leads the station number.
var groups = [10][Tones]int{
	{1, 1, 1, 1},
	{1, 1, 1, 2},
	{1, 1, 2, 2},
	{1, 2, 2, 2},
	{2, 2, 2, 2},
	{2, 2, 2, 3},
	{2, 2, 3, 3},
	{2, 3, 3, 3},
	{3, 3, 3, 3},
	{1, 2, 3, 3},
}

// Suffix returns the station number without the long-form prefix.
func Suffix(number string) (string, error) {
	switch len(number) {
	case StationDigits:
	case StationDigits + PrefixDigits:
		number = number[PrefixDigits:]
	default:
		return "", fmt.Errorf("%q: %w", number, ErrInvalidNumber)
	}
	for i := 0; i < len(number); i++ {
		if number[i] < '0' || number[i] > '9' {
			return "", fmt.Errorf("%q: %w", number, ErrInvalidNumber)
		}
	}
	return number, nil
}

// ToneNumbers returns the four tone numbers (1..30) of a station number.
func ToneNumbers(number string) ([Tones]int, error) {
	var tones [Tones]int

	station, err := Suffix(number)
	if err != nil {
		return tones, err
	}

	decades := groups[station[0]-'0']
	var digits [Tones]int
	for i := 0; i < Tones; i++ {
		digit := int(station[i+1] - '0')
		if digit == 0 {
			digit = 10
		}
		for j := 0; j < i; j++ {
			if decades[j] == decades[i] && digits[j] == digit {
				return tones, &DuplicateToneError{
					Number: station,
					First:  j + 2,
					Second: i + 2,
					Tone:   (decades[i]-1)*10 + digit,
				}
			}
		}
		digits[i] = digit
		tones[i] = (decades[i]-1)*10 + digit
	}
	return tones, nil
}

// Frequency converts a tone number to Hz.
func Frequency(tone int) float64 {
	return BaseFrequency + float64(tone)*ToneSpacing
}

// Frequencies returns the four paging frequencies of a station number.
// It touches no state, so numbers can be validated before a channel is taken.
func Frequencies(number string) ([Tones]float64, error) {
	var freqs [Tones]float64

	tones, err := ToneNumbers(number)
	if err != nil {
		return freqs, err
	}
	for i, t := range tones {
		freqs[i] = Frequency(t)
	}
	return freqs, nil
}
