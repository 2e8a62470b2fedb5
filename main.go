package main

import "github.com/cheerawab/cherry0324/cmd"

func main() {
	cmd.Execute()
}
