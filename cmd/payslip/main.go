package main

import "payslip/internal/app/cli"

func main() {
	cli.Execute()
}
