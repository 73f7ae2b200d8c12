package main

import "spot-rate-alerts/internal/cli"

func main() {
	cli.Execute()
}
