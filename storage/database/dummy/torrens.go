package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/darslik/core/torrens"
)

type torrensRepository struct {
	db *DB
}

var _ torrens.Repository = (*torrensRepository)(nil) // interface compliance check

func NewTorrensRepository(db *DB) *torrensRepository {
	return &torrensRepository{db: db}
}

func (repo *torrensRepository) CreateTest(_ context.Context, test torrens.Test) (torrens.Test, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, t := range repo.db.tests {
		if t.Slug == test.Slug {
			return torrens.Test{}, torrens.ErrSlugExists
		}
	}
	orders := make(map[int]bool, len(test.Tasks))
	for _, task := range test.Tasks {
		if orders[task.Order] {
			return torrens.Test{}, torrens.ErrOrderExists
		}
		orders[task.Order] = true
	}

	test.ID = repo.db.nextPK()
	tasks := test.Tasks
	test.Tasks = nil
	repo.db.tests[test.ID] = &test
	for _, task := range tasks {
		task := task
		task.ID = repo.db.nextPK()
		task.TestID = test.ID
		task.Images = nil
		repo.db.tasks[task.ID] = &task
	}
	return repo.loadTest(test), nil
}

// loadTest attaches the test tasks (with their images) ordered by (order, id).
func (repo *torrensRepository) loadTest(test torrens.Test) torrens.Test {
	tasks := make([]torrens.Task, 0)
	for _, t := range repo.db.tasks {
		if t.TestID != test.ID {
			continue
		}
		task := *t
		task.Images = make([]torrens.TaskImage, 0)
		for _, img := range repo.db.taskImages {
			if img.TaskID == task.ID {
				task.Images = append(task.Images, *img)
			}
		}
		sort.Slice(task.Images, func(i, j int) bool { return task.Images[i].ID < task.Images[j].ID })
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		return tasks[i].ID < tasks[j].ID
	})
	test.Tasks = tasks
	return test
}

func (repo *torrensRepository) GetTestBySlug(_ context.Context, slug string) (torrens.Test, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, t := range repo.db.tests {
		if t.Slug == slug {
			return repo.loadTest(*t), nil
		}
	}
	return torrens.Test{}, torrens.ErrNotFound
}

func (repo *torrensRepository) GetTest(_ context.Context, id int64) (torrens.Test, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if t, ok := repo.db.tests[id]; ok {
		return repo.loadTest(*t), nil
	}
	return torrens.Test{}, torrens.ErrNotFound
}

func (repo *torrensRepository) QueryTests(_ context.Context, publishedOnly bool) ([]torrens.Test, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	tests := make([]torrens.Test, 0)
	for _, t := range repo.db.tests {
		if !publishedOnly || t.IsPublished {
			tests = append(tests, *t)
		}
	}
	sort.Slice(tests, func(i, j int) bool {
		if !tests[i].CreatedAt.Equal(tests[j].CreatedAt) {
			return tests[i].CreatedAt.After(tests[j].CreatedAt)
		}
		return tests[i].ID > tests[j].ID
	})
	return tests, nil
}

func (repo *torrensRepository) DeleteTest(_ context.Context, id int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.tests[id]; !ok {
		return torrens.ErrNotFound
	}
	delete(repo.db.tests, id)
	for tid, t := range repo.db.tasks {
		if t.TestID == id {
			delete(repo.db.tasks, tid)
			for iid, img := range repo.db.taskImages {
				if img.TaskID == tid {
					delete(repo.db.taskImages, iid)
				}
			}
		}
	}
	for sid, sub := range repo.db.submissions {
		if sub.TestID == id {
			repo.db.deleteSubmission(sid)
		}
	}
	return nil
}

func (repo *torrensRepository) AddTaskImages(_ context.Context, taskID int64, images []torrens.TaskImage) ([]torrens.TaskImage, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.tasks[taskID]; !ok {
		return nil, torrens.ErrNotFound
	}
	created := make([]torrens.TaskImage, len(images))
	for i, img := range images {
		img := img
		img.ID = repo.db.nextPK()
		img.TaskID = taskID
		repo.db.taskImages[img.ID] = &img
		created[i] = img
	}
	return created, nil
}

// Submissions

func (repo *torrensRepository) CreateSubmission(_ context.Context, sub torrens.Submission) (torrens.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.tests[sub.TestID]; !ok {
		return torrens.Submission{}, torrens.ErrNotFound
	}
	sub.ID = repo.db.nextPK()
	sub.Answers = nil
	repo.db.submissions[sub.ID] = &sub
	return sub, nil
}

// loadSubmission attaches the submission answers (with their images) in task order.
func (repo *torrensRepository) loadSubmission(sub torrens.Submission) torrens.Submission {
	answers := make([]torrens.Answer, 0)
	for _, a := range repo.db.answers {
		if a.SubmissionID == sub.ID {
			answers = append(answers, repo.loadAnswer(*a))
		}
	}
	taskOrder := func(a torrens.Answer) int {
		if t, ok := repo.db.tasks[a.TaskID]; ok {
			return t.Order
		}
		return 0
	}
	sort.Slice(answers, func(i, j int) bool {
		oi, oj := taskOrder(answers[i]), taskOrder(answers[j])
		if oi != oj {
			return oi < oj
		}
		return answers[i].TaskID < answers[j].TaskID
	})
	sub.Answers = answers
	return sub
}

func (repo *torrensRepository) loadAnswer(a torrens.Answer) torrens.Answer {
	a.ListAnswer = append([]string{}, a.ListAnswer...)
	a.Images = make([]torrens.AnswerImage, 0)
	for _, img := range repo.db.ansImages {
		if img.AnswerID == a.ID {
			a.Images = append(a.Images, *img)
		}
	}
	sort.Slice(a.Images, func(i, j int) bool { return a.Images[i].ID < a.Images[j].ID })
	return a
}

func (repo *torrensRepository) GetDraft(_ context.Context, testID int64, userID string) (torrens.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var latest *torrens.Submission
	for _, sub := range repo.db.submissions {
		if sub.TestID != testID || sub.UserID != userID || sub.Status != torrens.StatusDraft {
			continue
		}
		if latest == nil || sub.StartedAt.After(latest.StartedAt) ||
			(sub.StartedAt.Equal(latest.StartedAt) && sub.ID > latest.ID) {
			latest = sub
		}
	}
	if latest == nil {
		return torrens.Submission{}, torrens.ErrNotFound
	}
	return repo.loadSubmission(*latest), nil
}

func (repo *torrensRepository) GetSubmission(_ context.Context, id int64) (torrens.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sub, ok := repo.db.submissions[id]; ok {
		return repo.loadSubmission(*sub), nil
	}
	return torrens.Submission{}, torrens.ErrNotFound
}

func (repo *torrensRepository) UpdateSubmission(_ context.Context, sub torrens.Submission) (torrens.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.submissions[sub.ID]
	if !ok {
		return torrens.Submission{}, torrens.ErrNotFound
	}
	stored.Status = sub.Status
	stored.FinishedAt = sub.FinishedAt
	stored.TotalScore = sub.TotalScore
	return repo.loadSubmission(*stored), nil
}

func (repo *torrensRepository) QuerySubmissions(_ context.Context, filter torrens.SubmissionFilter) ([]torrens.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subs := make([]torrens.Submission, 0)
	for _, sub := range repo.db.submissions {
		switch {
		case filter.TestID != 0 && sub.TestID != filter.TestID,
			filter.UserID != "" && sub.UserID != filter.UserID,
			filter.Status != "" && sub.Status != filter.Status:
			continue
		}
		s := *sub
		s.Answers = nil
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].StartedAt.Equal(subs[j].StartedAt) {
			return subs[i].StartedAt.After(subs[j].StartedAt)
		}
		return subs[i].ID > subs[j].ID
	})
	return subs, nil
}

// Answers

func (repo *torrensRepository) SaveAnswer(_ context.Context, ans torrens.Answer) (torrens.Answer, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.submissions[ans.SubmissionID]; !ok {
		return torrens.Answer{}, torrens.ErrNotFound
	}
	for _, a := range repo.db.answers {
		if a.SubmissionID == ans.SubmissionID && a.TaskID == ans.TaskID {
			a.TextAnswer = ans.TextAnswer
			a.ListAnswer = append([]string{}, ans.ListAnswer...)
			a.DrawingImage = ans.DrawingImage
			return repo.loadAnswer(*a), nil
		}
	}
	ans.ID = repo.db.nextPK()
	ans.ListAnswer = append([]string{}, ans.ListAnswer...)
	ans.Images = nil
	repo.db.answers[ans.ID] = &ans
	return repo.loadAnswer(ans), nil
}

func (repo *torrensRepository) ReplaceAnswerImages(_ context.Context, answerID int64, images []torrens.AnswerImage) ([]torrens.AnswerImage, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.answers[answerID]; !ok {
		return nil, torrens.ErrNotFound
	}
	var removed []torrens.AnswerImage
	for id, img := range repo.db.ansImages {
		if img.AnswerID == answerID {
			removed = append(removed, *img)
			delete(repo.db.ansImages, id)
		}
	}
	for _, img := range images {
		img := img
		img.ID = repo.db.nextPK()
		img.AnswerID = answerID
		repo.db.ansImages[img.ID] = &img
	}
	return removed, nil
}

func (repo *torrensRepository) UpdateAnswerGrades(_ context.Context, answers []torrens.Answer) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, ans := range answers {
		a, ok := repo.db.answers[ans.ID]
		if !ok {
			return torrens.ErrNotFound
		}
		a.Score = ans.Score
		a.Note = ans.Note
	}
	return nil
}

// deleteSubmission must be called with the write lock held.
func (db *DB) deleteSubmission(id int64) {
	delete(db.submissions, id)
	for aid, a := range db.answers {
		if a.SubmissionID == id {
			delete(db.answers, aid)
			for iid, img := range db.ansImages {
				if img.AnswerID == aid {
					delete(db.ansImages, iid)
				}
			}
		}
	}
}
