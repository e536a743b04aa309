package main

import "github.com/ValentinKolb/dHA/cmd"

func main() {
	cmd.Execute()
}
