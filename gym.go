package pongrl

import (
	"errors"
	"fmt"

	"github.com/unixpickle/essentials"
	gym "github.com/unixpickle/gym-socket-api/binding-go"
)

// GymSimulator is a Simulator backed by an OpenAI Gym
// environment served by gym-socket-api.
//
// The environment must have a Discrete action space and
// an RGB Box observation space of shape [h, w, 3].
type GymSimulator struct {
	env gym.Env

	numActions int
	width      int
	height     int

	frame *Frame
	done  bool
}

// GymFactory creates a SimulatorFactory which connects
// to a gym-socket-api server for every new simulator.
func GymFactory(host, envName string) SimulatorFactory {
	return func() (Simulator, error) {
		client, err := gym.Make(host, envName)
		if err != nil {
			return nil, essentials.AddCtx("connect to gym", err)
		}
		sim, err := NewGymSimulator(client)
		if err != nil {
			client.Close()
			return nil, err
		}
		return sim, nil
	}
}

// NewGymSimulator wraps a gym environment.
func NewGymSimulator(e gym.Env) (sim *GymSimulator, err error) {
	defer essentials.AddCtxTo("create gym simulator", &err)
	actSpace, err := e.ActionSpace()
	if err != nil {
		return nil, err
	}
	if actSpace.Type != "Discrete" {
		return nil, errors.New("unsupported action space: " + actSpace.Type)
	}
	obsSpace, err := e.ObservationSpace()
	if err != nil {
		return nil, err
	}
	if obsSpace.Type != "Box" || len(obsSpace.Shape) != 3 || obsSpace.Shape[2] != 3 {
		return nil, fmt.Errorf("unsupported observation space: %s %v", obsSpace.Type,
			obsSpace.Shape)
	}
	return &GymSimulator{
		env:        e,
		numActions: actSpace.N,
		height:     obsSpace.Shape[0],
		width:      obsSpace.Shape[1],
	}, nil
}

// Reset resets the gym environment.
func (g *GymSimulator) Reset() (err error) {
	defer essentials.AddCtxTo("reset gym simulator", &err)
	obs, err := g.env.Reset()
	if err != nil {
		return err
	}
	g.done = false
	return g.setFrame(obs)
}

// Step takes an action in the gym environment.
func (g *GymSimulator) Step(action int) (reward float64, err error) {
	defer essentials.AddCtxTo("step gym simulator", &err)
	if g.done {
		return 0, errors.New("episode is over")
	}
	var obs gym.Obs
	obs, reward, g.done, _, err = g.env.Step(action)
	if err != nil {
		return
	}
	err = g.setFrame(obs)
	return
}

// State returns the latest frame.
func (g *GymSimulator) State() *Frame {
	return g.frame
}

// Terminated reports whether the episode has ended.
func (g *GymSimulator) Terminated() bool {
	return g.done
}

// Render asks the gym server to render the environment.
func (g *GymSimulator) Render() error {
	return essentials.AddCtx("render gym simulator", g.env.Render())
}

// NumActions returns the size of the Discrete space.
func (g *GymSimulator) NumActions() int {
	return g.numActions
}

// Close closes the connection to the gym server.
func (g *GymSimulator) Close() error {
	return g.env.Close()
}

func (g *GymSimulator) setFrame(obs gym.Obs) error {
	size := g.width * g.height * 3
	frame := &Frame{Width: g.width, Height: g.height}
	if u, ok := obs.(gym.Uint8Obs); ok {
		frame.Pix = append([]uint8{}, u.Uint8Obs()...)
	} else {
		flat, err := gym.Flatten(obs)
		if err != nil {
			return err
		}
		frame.Pix = make([]uint8, len(flat))
		for i, x := range flat {
			frame.Pix[i] = uint8(x)
		}
	}
	if len(frame.Pix) != size {
		return fmt.Errorf("observation has %d values but expected %d",
			len(frame.Pix), size)
	}
	g.frame = frame
	return nil
}
