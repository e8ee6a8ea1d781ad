package telegram

import (
	"errors"
	"strconv"
	"strings"
)

const HelpText = `Commands:
/status - latest evaluation cycle
/alerts - runtime state of every tracked alert
/state <alert_id> - runtime state of one alert
/search <keywords> - look up ticker symbols
/help - show this help
`

var ErrInvalidArguments = errors.New("invalid arguments")

func ParseAlertID(args string) (uint, error) {
	idStr := strings.TrimSpace(args)
	if idStr == "" {
		return 0, ErrInvalidArguments
	}
	idStr = strings.TrimPrefix(idStr, "#")
	value, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || value == 0 {
		return 0, ErrInvalidArguments
	}
	return uint(value), nil
}

func ParseQuery(args string) (string, error) {
	query := strings.Join(strings.Fields(args), " ")
	if query == "" {
		return "", ErrInvalidArguments
	}
	return query, nil
}
