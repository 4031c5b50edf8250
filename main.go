package main

import "github.com/ValentinKolb/hkv/cmd"

func main() {
	cmd.Execute()
}
