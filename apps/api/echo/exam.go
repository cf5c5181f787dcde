package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mtihani/core"
	"github.com/trezcool/mtihani/core/attempt"
	"github.com/trezcool/mtihani/core/exam"
	"github.com/trezcool/mtihani/core/user"
)

type examApi struct {
	conf       *core.Config
	svc        exam.Service
	attemptSvc attempt.Service
	userSvc    user.Service
	validate   *validator.Validate
}

func registerExamAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := examApi{
		conf:       deps.Conf,
		svc:        deps.ExamSvc,
		attemptSvc: deps.AttemptSvc,
		userSvc:    deps.UserSvc,
		validate:   deps.Validate,
	}

	eg := g.Group("/exams", jwt)
	eg.GET("", api.query, teacherMiddleware())
	eg.POST("", api.create, teacherMiddleware())
	eg.GET("/available", api.queryAvailable)
	eg.GET("/:id", api.start)
	eg.PUT("/:id", api.update, teacherMiddleware())
	eg.DELETE("/:id", api.destroy, teacherMiddleware())
	eg.POST("/:id/submit", api.submit)

	rg := g.Group("/results", jwt)
	rg.GET("", api.queryResults)
	rg.GET("/:id", api.retrieveResult)
}

// Handlers

func (api *examApi) create(ctx echo.Context) error {
	var data exam.NewExam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExam")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	ex, err := api.svc.Create(ctx.Request().Context(), ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating exam")
	}
	return ctx.JSON(http.StatusCreated, ex)
}

func (api *examApi) query(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	exams, err := api.svc.QueryByOwner(ctx.Request().Context(), ctxUsr.ID, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying exams")
	}
	if exams == nil {
		exams = []exam.Exam{}
	}
	return ctx.JSON(http.StatusOK, exams)
}

func (api *examApi) queryAvailable(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	exams, err := api.svc.QueryAvailable(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying available exams")
	}
	if exams == nil {
		exams = []exam.Exam{}
	}
	return ctx.JSON(http.StatusOK, exams)
}

// start opens (or resumes) the caller's attempt at the exam and returns
// the questions stripped of correctness flags.
func (api *examApi) start(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	att, err := api.attemptSvc.StartOrResume(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return err
	}
	ex, err := api.svc.GetByID(ctx.Request().Context(), att.ExamID)
	if err != nil {
		return errors.Wrap(err, "getting exam")
	}

	return ctx.JSON(http.StatusOK, StartExamResponse{
		Exam:    newTakerExam(ex),
		Attempt: att,
	})
}

func (api *examApi) update(ctx echo.Context) error {
	origEx, err := api.getOwnedExam(ctx)
	if err != nil {
		return err
	}

	var data exam.UpdateExam
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateExam")
	}
	if err = data.Validate(api.validate, origEx); err != nil {
		return err
	}

	ex, err := api.svc.Update(ctx.Request().Context(), origEx.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating exam")
	}
	return ctx.JSON(http.StatusOK, ex)
}

func (api *examApi) destroy(ctx echo.Context) error {
	ex, err := api.getOwnedExam(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), ex.ID); err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *examApi) submit(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data SubmitRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitRequest")
	}

	res, err := api.attemptSvc.Submit(ctx.Request().Context(), ctx.Param("id"), claims.Subject, data.Answers)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *examApi) queryResults(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	results, err := api.attemptSvc.QueryCompleted(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	if results == nil {
		results = []attempt.CompletedAttempt{}
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *examApi) retrieveResult(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	res, err := api.attemptSvc.GetResult(ctx.Request().Context(), ctx.Param("id"), ctxUsr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

// getOwnedExam loads the exam and hides it from non-owners (admins excepted).
func (api *examApi) getOwnedExam(ctx echo.Context) (exam.Exam, error) {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "getting context user")
	}

	ex, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return exam.Exam{}, err
	}
	if !(ex.CreatedBy == ctxUsr.ID || ctxUsr.IsAdmin()) {
		return exam.Exam{}, errHttpNotFound
	}
	return ex, nil
}

// taker views strip correctness flags from the question tree
type (
	TakerOption struct {
		ID       string `json:"id"`
		Text     string `json:"text"`
		Position int    `json:"position"`
	}

	TakerQuestion struct {
		ID       string        `json:"id"`
		Text     string        `json:"text"`
		Type     string        `json:"type"`
		Points   int           `json:"points"`
		Position int           `json:"position"`
		Options  []TakerOption `json:"options,omitempty"`
	}

	TakerExam struct {
		ID          string          `json:"id"`
		Title       string          `json:"title"`
		Description string          `json:"description"`
		Duration    int             `json:"duration"`
		Category    string          `json:"category"`
		Questions   []TakerQuestion `json:"questions"`
	}

	StartExamResponse struct {
		Exam    TakerExam       `json:"exam"`
		Attempt attempt.Attempt `json:"attempt"`
	}

	SubmitRequest struct {
		Answers map[string]string `json:"answers"`
	}
)

func newTakerExam(ex exam.Exam) TakerExam {
	te := TakerExam{
		ID:          ex.ID,
		Title:       ex.Title,
		Description: ex.Description,
		Duration:    ex.Duration,
		Category:    ex.Category,
		Questions:   make([]TakerQuestion, 0, len(ex.Questions)),
	}
	for _, q := range ex.Questions {
		tq := TakerQuestion{
			ID:       q.ID,
			Text:     q.Text,
			Type:     q.Type,
			Points:   q.Points,
			Position: q.Position,
		}
		for _, opt := range q.Options {
			tq.Options = append(tq.Options, TakerOption{ID: opt.ID, Text: opt.Text, Position: opt.Position})
		}
		te.Questions = append(te.Questions, tq)
	}
	return te
}
