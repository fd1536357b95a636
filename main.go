package main

import "github.com/siteqa/siteqa/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
