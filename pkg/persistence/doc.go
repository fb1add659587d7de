// Package persistence keeps the expectation set and files on disk in step.
//
// A Persister writes the active expectations to a file after every change
// to the store. A Watcher reloads the initializer files when they change and
// reconciles the store with their contents.
package persistence
