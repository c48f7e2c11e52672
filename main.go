package main

import "chronicreport/internal/app"

func main() {
	app.Main()
}
