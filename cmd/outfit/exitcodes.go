package main

import "os"

const (
	ExitSuccess        = 0
	ExitGeneral        = 1
	ExitUsage          = 2
	ExitRecipeNotFound = 3
	ExitNoPendingPlan  = 4
	ExitResolveFailed  = 5
	ExitExecuteFailed  = 6
	ExitCancelled      = 7
)

func exitWithCode(code int) {
	os.Exit(code)
}
