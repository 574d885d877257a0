// Command dispatch runs the transport operations command engine as an HTTP
// and MCP service, a one-shot CLI, or an interactive chat.
package main

func main() {
	Execute()
}
