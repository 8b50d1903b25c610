package main

import (
	"context"

	"github.com/immahesh111/modelerror-dashboard/cmd/modelerror/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
