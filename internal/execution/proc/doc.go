// Package proc runs chains of external processes connected by pipes.
//
// A Cmd describes one program invocation and a Pipeline an unstarted
// chain `a | b | c`. Both are immutable and may be shared between
// goroutines. Popen spawns a chain as a PopenPipeline, whose Communicate
// method feeds standard input, collects standard output and the merged
// standard error of all stages, and waits for every stage to exit, all
// without blocking on any single pipe.
package proc
