package main

import "github.com/icco/voicetrack/cmd"

func main() {
	cmd.Execute()
}
