package main

import "github.com/naka-gawa/github-leaderboard/cmd"

func main() {
	cmd.Execute()
}
