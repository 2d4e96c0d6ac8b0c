// Package model provides the data structures shared by the pipeline package and its plugins.
// It describes the stages of a pipeline, and the hooks a plugin implements to observe them
// while the pipeline runs.
package model
