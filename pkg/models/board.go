package models

// Board is the on-disk document behind tasks.json: every task and sprint of
// a project plus the three id counters. Counters only ever grow; deleting a
// record never rewinds them.
type Board struct {
	Tasks        []Task   `json:"tasks"`
	Sprints      []Sprint `json:"sprints"`
	NextID       int      `json:"next_id"`
	NextBugID    int      `json:"next_bug_id"`
	NextSprintID int      `json:"next_sprint_id"`
}

// EmptyBoard returns the initial document for a fresh project. Counters
// start at 1 so the first ids are T001, B001 and S001.
func EmptyBoard() Board {
	return Board{
		Tasks:        []Task{},
		Sprints:      []Sprint{},
		NextID:       1,
		NextBugID:    1,
		NextSprintID: 1,
	}
}

// FindTask returns a pointer into Tasks for the given id, or nil.
func (b *Board) FindTask(id string) *Task {
	for i := range b.Tasks {
		if b.Tasks[i].ID == id {
			return &b.Tasks[i]
		}
	}
	return nil
}

// FindSprint returns a pointer into Sprints for the given id, or nil.
func (b *Board) FindSprint(id string) *Sprint {
	for i := range b.Sprints {
		if b.Sprints[i].ID == id {
			return &b.Sprints[i]
		}
	}
	return nil
}

// SprintTasks returns the tasks attached to a sprint.
func (b *Board) SprintTasks(sprintID string) []Task {
	var out []Task
	for _, t := range b.Tasks {
		if t.SprintID == sprintID {
			out = append(out, t)
		}
	}
	return out
}

// FinalizeTask returns the sprint's finalize task, or nil if the sprint has
// none.
func (b *Board) FinalizeTask(sprintID string) *Task {
	for i := range b.Tasks {
		if b.Tasks[i].SprintID == sprintID && b.Tasks[i].IsFinalize {
			return &b.Tasks[i]
		}
	}
	return nil
}
