package main

import "github.com/snakeai/snakelearn/examples"

func main() {
	examples.DeepQGrid()
	examples.A2CGrid()
}
