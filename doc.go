// Package pongrl implements the environment half of a
// recurrent actor-critic agent for Pong.
//
// Raw simulator frames are turned into binary 80x80
// observations by a Preprocessor, and a PreprocessEnv
// exposes any Simulator as an Env which the A3C trainer
// in package a3c can drive.
package pongrl
