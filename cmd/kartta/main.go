// kartta discovers cloud resources and emits them as normalized envelopes.
package main

func main() {
	Execute()
}
