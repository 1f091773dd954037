package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core/contact"
	"github.com/trezcool/darslik/core/library"
	"github.com/trezcool/darslik/core/testimonial"
)

type contentApi struct {
	testimonials *testimonial.Service
	library      *library.Service
	contact      *contact.Service
	validate     *validator.Validate
}

// registerContentAPI registers the testimonials, the digital library and the contact form.
func registerContentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := contentApi{
		testimonials: deps.TestimonialSvc,
		library:      deps.LibrarySvc,
		contact:      deps.ContactSvc,
		validate:     deps.Validate,
	}

	g.GET("/library", api.listLibrary)
	g.GET("/testimonials", api.listTestimonials)
	g.POST("/testimonials", api.submitTestimonial)
	g.POST("/contact", api.sendContact)
	g.POST("/testimonials/publish", api.publishTestimonials, jwt, staffMiddleware())
	g.POST("/testimonials/unpublish", api.unpublishTestimonials, jwt, staffMiddleware())

	ag := g.Group("/admin", jwt, staffMiddleware())
	ag.GET("/testimonials", api.listAllTestimonials)
	ag.DELETE("/testimonials", api.destroyTestimonials)
	ag.GET("/library", api.listAllLibrary)
	ag.POST("/library", api.createLibraryItem)
	ag.PUT("/library/:id", api.updateLibraryItem)
	ag.DELETE("/library/:id", api.destroyLibraryItem)
}

func (api *contentApi) listLibrary(ctx echo.Context) error {
	items, err := api.library.ListPublished(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing library items")
	}
	if items == nil {
		items = []library.ItemView{}
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *contentApi) listTestimonials(ctx echo.Context) error {
	ts, err := api.testimonials.ListPublished(ctx.Request().Context(), 0)
	if err != nil {
		return errors.Wrap(err, "listing testimonials")
	}
	if ts == nil {
		ts = []testimonial.Testimonial{}
	}
	return ctx.JSON(http.StatusOK, ts)
}

// submitTestimonial takes a JSON body, or a form with an optional `photo` file.
// Submissions wait for staff moderation.
func (api *contentApi) submitTestimonial(ctx echo.Context) error {
	var data testimonial.NewTestimonial
	err := bindJSONOrForm(ctx, &data, func(get func(string) string) error {
		data.FullName = get("full_name")
		data.Role = get("role")
		data.Quote = get("quote")
		rating, err := formInt(get, "rating")
		data.Rating = rating
		return err
	})
	if err != nil {
		return errors.Wrap(err, "binding to NewTestimonial")
	}
	data.Photo = formUpload(ctx, "photo")

	t, err := api.testimonials.Submit(ctx.Request().Context(), api.validate, data)
	if err != nil {
		return errors.Wrap(err, "submitting testimonial")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *contentApi) sendContact(ctx echo.Context) error {
	var data contact.Message
	err := bindJSONOrForm(ctx, &data, func(get func(string) string) error {
		data.Name = get("name")
		data.Email = get("email")
		data.Subject = get("subject")
		data.Message = get("message")
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "binding to Message")
	}
	if err = api.contact.Send(api.validate, data); err != nil {
		return errors.Wrap(err, "sending contact message")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Thank you! Your message has been sent."})
}

// Back office

func (api *contentApi) listAllTestimonials(ctx echo.Context) error {
	ts, err := api.testimonials.ListAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing testimonials")
	}
	if ts == nil {
		ts = []testimonial.Testimonial{}
	}
	return ctx.JSON(http.StatusOK, ts)
}

func (api *contentApi) bindIDs(ctx echo.Context) ([]int64, error) {
	var data IDsRequest
	if err := ctx.Bind(&data); err != nil {
		return nil, errors.Wrap(err, "binding to IDsRequest")
	}
	if len(data.IDs) == 0 {
		data.IDs = ParseIDs(ctx.QueryParam("ids"))
	}
	return data.IDs, nil
}

func (api *contentApi) publishTestimonials(ctx echo.Context) error {
	ids, err := api.bindIDs(ctx)
	if err != nil {
		return err
	}
	if err = api.testimonials.Publish(ctx.Request().Context(), ids...); err != nil {
		return errors.Wrap(err, "publishing testimonials")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *contentApi) unpublishTestimonials(ctx echo.Context) error {
	ids, err := api.bindIDs(ctx)
	if err != nil {
		return err
	}
	if err = api.testimonials.Unpublish(ctx.Request().Context(), ids...); err != nil {
		return errors.Wrap(err, "unpublishing testimonials")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *contentApi) destroyTestimonials(ctx echo.Context) error {
	ids := ParseIDs(ctx.QueryParam("ids"))
	if len(ids) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}
	if err := api.testimonials.Delete(ctx.Request().Context(), ids...); err != nil {
		return errors.Wrap(err, "deleting testimonials")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *contentApi) listAllLibrary(ctx echo.Context) error {
	items, err := api.library.ListAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing library items")
	}
	return ctx.JSON(http.StatusOK, items)
}

// bindLibraryItem takes a form with the optional `file` and `thumb` uploads, or a JSON body.
func (api *contentApi) bindLibraryItem(ctx echo.Context) (library.NewItem, error) {
	var data library.NewItem
	err := bindJSONOrForm(ctx, &data, func(get func(string) string) error {
		data.Standard = get("standard")
		data.Title = get("title")
		data.Link = get("link")
		data.DCCreator = get("dc_creator")
		data.DCDate = get("dc_date")
		data.DCFormat = get("dc_format")
		data.IsPublished = formBool(get, "is_published")
		return nil
	})
	if err != nil {
		return data, errors.Wrap(err, "binding to NewItem")
	}
	data.File = formUpload(ctx, "file")
	data.Thumb = formUpload(ctx, "thumb")
	return data, nil
}

func (api *contentApi) createLibraryItem(ctx echo.Context) error {
	data, err := api.bindLibraryItem(ctx)
	if err != nil {
		return err
	}
	it, err := api.library.Create(ctx.Request().Context(), api.validate, data)
	if err != nil {
		return errors.Wrap(err, "creating library item")
	}
	return ctx.JSON(http.StatusCreated, api.library.View(it))
}

func (api *contentApi) updateLibraryItem(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	data, err := api.bindLibraryItem(ctx)
	if err != nil {
		return err
	}
	it, err := api.library.Update(ctx.Request().Context(), api.validate, id, data)
	if err != nil {
		return errors.Wrap(err, "updating library item")
	}
	return ctx.JSON(http.StatusOK, api.library.View(it))
}

func (api *contentApi) destroyLibraryItem(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.library.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting library item")
	}
	return ctx.NoContent(http.StatusNoContent)
}
