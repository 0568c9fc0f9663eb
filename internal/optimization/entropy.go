package optimization

// ModelCosts is the per-second normalized cost of each model tier, used
// to budget entropy-based allocations.
var ModelCosts = map[string]float64{
	"haiku":  0.1,
	"sonnet": 0.5,
	"opus":   2.0,
}

// TaskInfo describes one task's entropy inputs.
type TaskInfo struct {
	ID                    string
	Description           string
	Complexity            float64
	HistoricalFailureRate float64
	DQVariance            float64
}

// Allocation is the resource allocation chosen for one task.
type Allocation struct {
	TaskID         string
	Model          string
	TimeoutSeconds int
	AgentCount     int
}

func calculateEntropy(t TaskInfo) float64 {
	return 0.4*t.Complexity + 0.3*t.HistoricalFailureRate + 0.3*t.DQVariance
}

func allocateResources(entropy float64) (model string, timeout, agentCount int) {
	switch {
	case entropy > 0.7:
		return "opus", 600, 2
	case entropy > 0.3:
		return "sonnet", 300, 1
	default:
		return "haiku", 120, 1
	}
}

func calculateCost(model string, timeout int) float64 {
	return ModelCosts[model] * float64(timeout)
}

// AllocateEntropy allocates resources to tasks within budget, highest-
// entropy tasks first. A task that can't afford its entropy-indicated
// tier is downgraded (opus -> sonnet -> haiku) before being skipped; the
// allocation loop stops entirely — rather than skipping ahead to a
// cheaper, lower-entropy task — the first time even the haiku tier can't
// be afforded, matching the original's early `break`.
func AllocateEntropy(tasks []TaskInfo, budget float64) []Allocation {
	withEntropy := make([]scoredTask, len(tasks))
	for i, t := range tasks {
		withEntropy[i] = scoredTask{t, calculateEntropy(t)}
	}
	sortByEntropyDesc(withEntropy)

	var allocations []Allocation
	totalCost := 0.0

	for _, se := range withEntropy {
		model, timeout, agentCount := allocateResources(se.entropy)
		cost := calculateCost(model, timeout)

		if totalCost+cost <= budget {
			allocations = append(allocations, Allocation{se.task.ID, model, timeout, agentCount})
			totalCost += cost
			continue
		}

		if model == "opus" {
			cost = calculateCost("sonnet", 300)
			if totalCost+cost <= budget {
				allocations = append(allocations, Allocation{se.task.ID, "sonnet", 300, 1})
				totalCost += cost
				continue
			}
		}

		if model == "opus" || model == "sonnet" {
			cost = calculateCost("haiku", 120)
			if totalCost+cost <= budget {
				allocations = append(allocations, Allocation{se.task.ID, "haiku", 120, 1})
				totalCost += cost
				continue
			}
		}

		break
	}

	return allocations
}

type scoredTask struct {
	task    TaskInfo
	entropy float64
}

func sortByEntropyDesc(items []scoredTask) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].entropy > items[j-1].entropy; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
