package report

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/analytics"
	"github.com/liamAduDonkor/adesua-sub000/core/schedule"
)

var (
	reportTypeTag  = "reporttype"
	reportTypeText = "unknown report type"

	outputFormatTag  = "outputformat"
	outputFormatText = "output format must be one of pdf, xlsx, csv or json"

	frequencyTag  = "frequency"
	frequencyText = "frequency must be one of daily, weekly, monthly, quarterly or yearly"

	groupByTag  = "groupby"
	groupByText = "group by must be one of region, school, class or subject"

	dateRangeTag  = "daterange"
	dateRangeText = "date_to must be after date_from"
)

// InitValidators registers the report validation tags. core.InitValidators must have been called first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(reportTypeTag, func(fl validator.FieldLevel) bool {
		return Type(fl.Field().String()).IsValid()
	})
	core.RegisterCustomTranslation(validate, translator, reportTypeTag, reportTypeText)

	_ = validate.RegisterValidation(outputFormatTag, func(fl validator.FieldLevel) bool {
		return Format(fl.Field().String()).IsValid()
	})
	core.RegisterCustomTranslation(validate, translator, outputFormatTag, outputFormatText)

	_ = validate.RegisterValidation(frequencyTag, func(fl validator.FieldLevel) bool {
		return schedule.Frequency(fl.Field().String()).IsValid()
	})
	core.RegisterCustomTranslation(validate, translator, frequencyTag, frequencyText)

	_ = validate.RegisterValidation(groupByTag, func(fl validator.FieldLevel) bool {
		return analytics.GroupBy(fl.Field().String()).IsValid()
	})
	core.RegisterCustomTranslation(validate, translator, groupByTag, groupByText)

	validate.RegisterStructValidation(filtersStructValidation, Filters{})
	core.RegisterCustomTranslation(validate, translator, dateRangeTag, dateRangeText)
}

// filtersStructValidation checks that the date range is not inverted.
func filtersStructValidation(sl validator.StructLevel) {
	f := sl.Current().Interface().(Filters)
	if !f.DateFrom.IsZero() && !f.DateTo.IsZero() && !f.DateFrom.Before(f.DateTo) {
		sl.ReportError(f.DateTo, "date_to", "DateTo", dateRangeTag, "")
	}
}
