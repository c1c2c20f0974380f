// Package chatmodel provides the per-query context shared by the orchestration and its callbacks.
package chatmodel
