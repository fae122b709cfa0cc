package chat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Step tags what a choice token selects.
type Step string

const (
	StepCategory Step = "cat"
	StepAccount  Step = "acc"
	StepMonth    Step = "month"
	StepDelete   Step = "del"
)

var ErrInvalidToken = errors.New("invalid choice token")

// Token is the typed payload behind a choice button. Which fields are used
// depends on Step:
//
//	cat, acc: Seq of the pending entry and Index into the option list
//	month:    Period label (YYYY-MM)
//	del:      ID of the transaction to delete
type Token struct {
	Step   Step
	Seq    uint64
	Index  int
	Period string
	ID     uint
}

func CategoryToken(seq uint64, index int) Token {
	return Token{Step: StepCategory, Seq: seq, Index: index}
}

func AccountToken(seq uint64, index int) Token {
	return Token{Step: StepAccount, Seq: seq, Index: index}
}

func MonthToken(period string) Token {
	return Token{Step: StepMonth, Period: period}
}

func DeleteToken(id uint) Token {
	return Token{Step: StepDelete, ID: id}
}

// Encode renders the token as a short colon separated string, e.g.
// "cat:12:3", "month:2026-11" or "del:42".
func (t Token) Encode() string {
	switch t.Step {
	case StepCategory, StepAccount:
		return fmt.Sprintf("%s:%d:%d", t.Step, t.Seq, t.Index)
	case StepMonth:
		return fmt.Sprintf("%s:%s", t.Step, t.Period)
	case StepDelete:
		return fmt.Sprintf("%s:%d", t.Step, t.ID)
	default:
		return ""
	}
}

// DecodeToken parses a string produced by Encode.
func DecodeToken(s string) (Token, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return Token{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
	}

	step := Step(parts[0])
	switch step {
	case StepCategory, StepAccount:
		if len(parts) != 3 {
			return Token{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
		}
		seq, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return Token{}, fmt.Errorf("%w: bad sequence in %q", ErrInvalidToken, s)
		}
		idx, err := strconv.Atoi(parts[2])
		if err != nil || idx < 0 {
			return Token{}, fmt.Errorf("%w: bad index in %q", ErrInvalidToken, s)
		}
		return Token{Step: step, Seq: seq, Index: idx}, nil

	case StepMonth:
		if len(parts) != 2 || !validPeriodLabel(parts[1]) {
			return Token{}, fmt.Errorf("%w: bad period in %q", ErrInvalidToken, s)
		}
		return MonthToken(parts[1]), nil

	case StepDelete:
		if len(parts) != 2 {
			return Token{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
		}
		id, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil || id == 0 {
			return Token{}, fmt.Errorf("%w: bad id in %q", ErrInvalidToken, s)
		}
		return DeleteToken(uint(id)), nil
	}

	return Token{}, fmt.Errorf("%w: unknown step %q", ErrInvalidToken, parts[0])
}

// validPeriodLabel checks the YYYY-MM shape without pulling in the ledger.
func validPeriodLabel(s string) bool {
	if len(s) != 7 || s[4] != '-' {
		return false
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil || year < 1 {
		return false
	}
	month, err := strconv.Atoi(s[5:])
	return err == nil && month >= 1 && month <= 12
}
