package main

import "github.com/lucasschonrock/spring-input-boolean/cmd/spring-daemon/cmd"

func main() {
	cmd.Execute()
}
