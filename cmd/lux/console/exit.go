package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Exit codes used by lux.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}

// Fail reports a failed operation with its cause highlighted.
func Fail(what string, err error) cli.ExitCoder {
	return Exit(ExitFailure, "%s: %s", what, Red(err))
}
