// Package testutil contains helpers used across tests to reduce boilerplate
// when constructing memories, collecting emitted steps and mocking the chat
// store. They are not intended for production usage.
package testutil
