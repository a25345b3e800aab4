package main

import "github.com/lucasschonrock/spring-input-boolean/cmd/spring-override/cmd"

func main() {
	cmd.Execute()
}
