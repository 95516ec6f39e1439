// Package testutil provides fake engines and recorders for bake tests.
//
// FakeRenderer and FakeShared implement audio.RenderEngine and
// audio.SharedEngine. Both append to a shared OpLog so tests can assert the
// exact interleaving of engine calls (pause before the first open, resume
// after the last write, and so on).
package testutil
