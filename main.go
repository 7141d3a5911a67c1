package main

import "github.com/Kosmasu/EEG-streamer/cmd"

func main() {
	cmd.Execute()
}
