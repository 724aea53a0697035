// Command foundersync talks to the agent team from the terminal.
package main

func main() {
	Execute()
}
