// Command expensify-os fetches monthly vendor charges and files them as expenses.
package main

import "os"

func main() {
	os.Exit(execute(os.Args[1:]))
}
