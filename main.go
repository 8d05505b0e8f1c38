package main

import "descargamasiva/cmd"

func main() {
	cmd.Execute()
}
