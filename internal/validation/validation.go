/*
 * Copyright 2026 The Revdoc Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package validation validates identifiers and configuration with
// go-playground/validator and renders violations in English.
package validation

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

const (
	// Document ids beginning with "_" are reserved, except for the design and
	// local namespaces.
	docIDRegexString       = `^(_design/|_local/)?[^_\x00-\x1f][^\x00-\x1f]*$`
	contentTypeRegexString = `^[a-zA-Z0-9][a-zA-Z0-9!#$&^_.+-]*/[a-zA-Z0-9][a-zA-Z0-9!#$&^_.+-]*(\s*;.*)?$`
	durationRegexString    = `^(\d+h)?(\d+m)?(\d+s)?(\d+ms)?$`
)

var (
	docIDRegex       = regexp.MustCompile(docIDRegexString)
	contentTypeRegex = regexp.MustCompile(contentTypeRegexString)
	durationRegex    = regexp.MustCompile(durationRegexString)
)

var (
	defaultValidator = validator.New()
	defaultEn        = en.New()
	uni              = ut.New(defaultEn, defaultEn)
	trans, _         = uni.GetTranslator(defaultEn.Locale())
)

// FieldLevel is the field level interface.
type FieldLevel = validator.FieldLevel

// Violation is the error returned by the validation of a single value.
type Violation struct {
	Tag         string
	Field       string
	Err         error
	Description string
}

// Error returns the translated description of the violation.
func (e Violation) Error() string {
	if e.Description != "" {
		return e.Description
	}
	return e.Err.Error()
}

// StructError is the error returned by the validation of a struct.
type StructError struct {
	Violations []Violation
}

// Error returns the violations, one per line.
func (s StructError) Error() string {
	sb := strings.Builder{}
	for _, v := range s.Violations {
		sb.WriteString(v.Error())
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// RegisterValidation registers a custom validation with the given tag.
func RegisterValidation(tag string, fn validator.Func) error {
	if err := defaultValidator.RegisterValidation(tag, fn); err != nil {
		return fmt.Errorf("register validation: %w", err)
	}
	return nil
}

// RegisterTranslation registers the message rendered for the given tag.
func RegisterTranslation(tag, msg string) error {
	if err := defaultValidator.RegisterTranslation(
		tag,
		trans,
		func(ut ut.Translator) error {
			if err := ut.Add(tag, msg, true); err != nil {
				return fmt.Errorf("register translation: %w", err)
			}
			return nil
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	); err != nil {
		return fmt.Errorf("register translation: %w", err)
	}
	return nil
}

// ValidateValue validates the value with the tag.
func ValidateValue(v interface{}, tag string) error {
	if err := defaultValidator.Var(v, tag); err != nil {
		for _, e := range err.(validator.ValidationErrors) {
			return Violation{
				Tag:         e.Tag(),
				Err:         e,
				Description: e.Translate(trans),
			}
		}
	}
	return nil
}

// ValidateStruct validates the struct by its "validate" tags.
func ValidateStruct(s interface{}) error {
	if err := defaultValidator.Struct(s); err != nil {
		structError := &StructError{}
		for _, e := range err.(validator.ValidationErrors) {
			structError.Violations = append(structError.Violations, Violation{
				Tag:         e.Tag(),
				Field:       e.StructField(),
				Err:         e,
				Description: e.Translate(trans),
			})
		}
		return structError
	}

	return nil
}

// ValidateDocID validates a document id.
func ValidateDocID(id string) error {
	return ValidateValue(id, "required,doc_id")
}

// ValidateAttachmentName validates the name of an attachment.
func ValidateAttachmentName(name string) error {
	return ValidateValue(name, "required,attachment_name")
}

// ValidateContentType validates a MIME content type.
func ValidateContentType(contentType string) error {
	return ValidateValue(contentType, "required,content_type")
}

func mustRegister(tag, msg string, fn validator.Func) {
	if err := RegisterValidation(tag, fn); err != nil {
		fmt.Fprintf(os.Stderr, "validation %s: %v\n", tag, err)
		os.Exit(1)
	}
	if err := RegisterTranslation(tag, msg); err != nil {
		fmt.Fprintf(os.Stderr, "validation %s: %v\n", tag, err)
		os.Exit(1)
	}
}

func init() {
	if err := entranslations.RegisterDefaultTranslations(defaultValidator, trans); err != nil {
		fmt.Fprintf(os.Stderr, "validation register default translations: %v\n", err)
		os.Exit(1)
	}

	mustRegister("doc_id", "{0} must not start with an underscore or contain control characters",
		func(level validator.FieldLevel) bool {
			return docIDRegex.MatchString(level.Field().String())
		})

	mustRegister("attachment_name", "{0} must not start with an underscore or contain control characters",
		func(level validator.FieldLevel) bool {
			val := level.Field().String()
			if strings.HasPrefix(val, "_") {
				return false
			}
			for _, r := range val {
				if r < 0x20 {
					return false
				}
			}
			return true
		})

	mustRegister("content_type", "{0} must be a MIME type such as text/plain",
		func(level validator.FieldLevel) bool {
			return contentTypeRegex.MatchString(level.Field().String())
		})

	mustRegister("duration", "{0} must be a valid time duration string format",
		func(level validator.FieldLevel) bool {
			val := level.Field().String()
			return val != "" && durationRegex.MatchString(val)
		})
}
