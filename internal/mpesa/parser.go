// Package mpesa reads M-PESA confirmation SMS text pasted into the chat.
package mpesa

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNotReceipt means the text is not a recognised confirmation message.
var ErrNotReceipt = errors.New("not an M-PESA confirmation message")

type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

type Receipt struct {
	Code         string
	Amount       float64
	Counterparty string
	Time         time.Time
	Balance      float64
	Cost         float64
	Direction    Direction
}

// Variants seen in the wild:
//   - optional periods and doubled spaces around the clauses
//   - "for account ..." inside the counterparty
//   - "New M-PESA balance" or "New business balance"
//   - no space between "PM." and "New"
//   - trailing marketing text after the last clause
const money = `Ksh[\d,]+(?:\.\d+)?`

var (
	outgoingRe = regexp.MustCompile(`(?i)(\w+)\s+Confirmed\.?\s+(` + money + `)\s+(?:sent|paid)\s+to\s+(.*?)\s*\.?\s+on\s+(\d{1,2}/\d{1,2}/\d{2})\s+at\s+(\d{1,2}:\d{2}\s?(?:AM|PM))\.?\s*New\s+(?:M-PESA|business)\s+balance\s+is\s+(` + money + `)\.\s*Transaction\s+cost,?\s*(` + money + `)(?:\.|\b)`)
	incomingRe = regexp.MustCompile(`(?i)(\w+)\s+Confirmed\.?\s*You\s+have\s+received\s+(` + money + `)\s+from\s+(.*?)\s*\.?\s+on\s+(\d{1,2}/\d{1,2}/\d{2})\s+at\s+(\d{1,2}:\d{2}\s?(?:AM|PM))\.?\s*New\s+(?:M-PESA|business)\s+balance\s+is\s+(` + money + `)(?:\.|\b)`)
)

// Parse reads one confirmation message. Sent and paid messages are
// Outgoing, received messages are Incoming and carry no transaction cost.
func Parse(msg string) (*Receipt, error) {
	if m := outgoingRe.FindStringSubmatch(msg); m != nil {
		r, err := build(m[1:7], Outgoing)
		if err != nil {
			return nil, err
		}
		if r.Cost, err = parseMoney(m[7]); err != nil {
			return nil, fmt.Errorf("failed to parse cost: %w", err)
		}
		return r, nil
	}
	if m := incomingRe.FindStringSubmatch(msg); m != nil {
		return build(m[1:7], Incoming)
	}
	return nil, ErrNotReceipt
}

// ParseNote reads a pasted receipt followed by optional note lines. A line
// starting with "r:" or "Reason:" becomes the description.
func ParseNote(text string) (*Receipt, string, error) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	r, err := Parse(lines[0])
	if err != nil {
		return nil, "", err
	}

	var reason string
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		for _, prefix := range []string{"Reason:", "r:"} {
			if strings.HasPrefix(line, prefix) {
				reason = strings.TrimSpace(strings.TrimPrefix(line, prefix))
			}
		}
	}
	return r, reason, nil
}

// build converts the shared captures: code, amount, counterparty, date,
// time, balance.
func build(m []string, dir Direction) (*Receipt, error) {
	amount, err := parseMoney(m[1])
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	when, err := parseTime(m[3], m[4])
	if err != nil {
		return nil, fmt.Errorf("failed to parse date/time: %w", err)
	}
	balance, err := parseMoney(m[5])
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}

	return &Receipt{
		Code:         m[0],
		Amount:       amount,
		Counterparty: strings.Join(strings.Fields(strings.TrimSuffix(m[2], ".")), " "),
		Time:         when,
		Balance:      balance,
		Direction:    dir,
	}, nil
}

func parseMoney(s string) (float64, error) {
	if len(s) >= 3 && strings.EqualFold(s[:3], "ksh") {
		s = s[3:]
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}

// parseTime reads "17/9/25" and "6:56 PM" (or "6:56PM") as local wall time.
func parseTime(date, clock string) (time.Time, error) {
	clock = strings.ToUpper(strings.Join(strings.Fields(clock), ""))
	if len(clock) < 3 {
		return time.Time{}, fmt.Errorf("bad time %q", clock)
	}
	clock = clock[:len(clock)-2] + " " + clock[len(clock)-2:]
	return time.Parse("2/1/06 3:04 PM", date+" "+clock)
}
