/*
Package issuance implements the Bitcoin reward schedule: per-era block
subsidies, the cumulative coin supply as a function of block height, and the
inverse lookup of the first height at which a supply target is reached.
*/
package issuance

import "fmt"

// Coin is the number of satoshis in one bitcoin.
const Coin = 100000000

// Schedule is a halving-based issuance schedule. The per-block subsidy
// starts at InitialSubsidy satoshis and halves (rounding down) every
// EraLength blocks, reaching zero after finitely many eras. Both fields
// must be positive.
type Schedule struct {
	InitialSubsidy int64 `yaml:"initialsubsidy" json:"initialsubsidy"`
	EraLength      int64 `yaml:"eralength" json:"eralength"`
}

// MainnetSchedule is the Bitcoin mainnet schedule: 50 BTC per block,
// halving every 210000 blocks.
var MainnetSchedule = Schedule{
	InitialSubsidy: 50 * Coin,
	EraLength:      210000,
}

// UnreachableSupplyError means the supply target exceeds the schedule's
// total issuance. Since schedule and target are both configuration
// constants, this is a startup error, never a runtime condition.
type UnreachableSupplyError struct {
	Target int64
	Total  int64
}

func (err UnreachableSupplyError) Error() string {
	return fmt.Sprintf("supply target %d satoshis exceeds total issuance %d",
		err.Target, err.Total)
}

// SubsidyAt returns the per-block subsidy, in satoshis, during era.
func (s Schedule) SubsidyAt(era int64) int64 {
	if era < 0 || era > 62 {
		return 0
	}
	return s.InitialSubsidy >> uint(era)
}

// CumulativeAt returns the supply, in satoshis, issued through and
// including block height. The subsidy for a block is credited upon that
// block's completion, so height h counts h+1 rewards. Negative heights
// yield 0. The result is non-decreasing in height and bounded by
// TotalSupply.
func (s Schedule) CumulativeAt(height int64) int64 {
	if height < 0 {
		return 0
	}
	var total int64
	remaining := height + 1
	for era := int64(0); remaining > 0; era++ {
		subsidy := s.SubsidyAt(era)
		if subsidy == 0 {
			break
		}
		n := remaining
		if n > s.EraLength {
			n = s.EraLength
		}
		total += n * subsidy
		remaining -= n
	}
	return total
}

// HeightForSupply returns the smallest height h with CumulativeAt(h) >=
// target. Whole eras are consumed while the remaining target exceeds their
// issuance; within the crossing era the block offset is the ceiling
// division of the remainder by the era subsidy, minus one to account for
// rewards being credited on block completion. Targets <= 0 resolve to
// height 0. Returns an UnreachableSupplyError if the subsidy floors to
// zero before the target is met.
func (s Schedule) HeightForSupply(target int64) (int64, error) {
	if target <= 0 {
		return 0, nil
	}
	var consumed int64
	remaining := target
	for era := int64(0); ; era++ {
		subsidy := s.SubsidyAt(era)
		if subsidy == 0 {
			return 0, UnreachableSupplyError{Target: target, Total: s.TotalSupply()}
		}
		eraTotal := s.EraLength * subsidy
		if remaining > eraTotal {
			remaining -= eraTotal
			consumed += s.EraLength
			continue
		}
		offset := (remaining + subsidy - 1) / subsidy
		return consumed + offset - 1, nil
	}
}

// TotalSupply returns the schedule's total issuance in satoshis, summed in
// closed form over all eras with a nonzero subsidy.
func (s Schedule) TotalSupply() int64 {
	var total int64
	for era := int64(0); ; era++ {
		subsidy := s.SubsidyAt(era)
		if subsidy == 0 {
			return total
		}
		total += s.EraLength * subsidy
	}
}
