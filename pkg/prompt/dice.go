package prompt

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DiceStart = "[Dice Roll Start]"
	DiceEnd   = "[Dice Roll End]"
)

type DiceRoll struct {
	ID              string `json:"id" yaml:"id"`
	DiceCount       int    `json:"diceCount" yaml:"diceCount"`
	DiceType        int    `json:"diceType" yaml:"diceType"`
	InstructionText string `json:"instructionText" yaml:"instructionText"`
	Enabled         bool   `json:"isEnabled" yaml:"enabled"`
}

// DiceRoller produces dice blocks from a shared random source.
type DiceRoller struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewDiceRoller uses rnd as its source, or a time-seeded one when rnd is nil.
func NewDiceRoller(rnd *rand.Rand) *DiceRoller {
	if rnd == nil {
		seed := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(seed, seed>>7))
	}
	return &DiceRoller{rnd: rnd}
}

// Roll returns DiceCount results in [1, DiceType]. Disabled or degenerate dice roll nothing.
func (d *DiceRoller) Roll(roll DiceRoll) []int {
	if !roll.Enabled || roll.DiceCount <= 0 || roll.DiceType <= 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ret := make([]int, roll.DiceCount)
	for i := range ret {
		ret[i] = d.rnd.IntN(roll.DiceType) + 1
	}
	return ret
}

// Block rolls every enabled die and formats the results as an instruction block.
// It returns "" when nothing was rolled.
func (d *DiceRoller) Block(rolls []DiceRoll) string {
	var lines []string
	for _, r := range rolls {
		results := d.Roll(r)
		if len(results) == 0 {
			continue
		}
		parts := make([]string, len(results))
		for i, v := range results {
			parts[i] = strconv.Itoa(v)
		}
		lines = append(lines, fmt.Sprintf("{%s:%s}", r.InstructionText, strings.Join(parts, ",")))
	}
	if len(lines) == 0 {
		return ""
	}
	return DiceStart + "\n" + strings.Join(lines, "\n") + "\n" + DiceEnd
}
