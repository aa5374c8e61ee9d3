package server

import (
	"fmt"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/boards"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/tasks"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var validatorsOnce sync.Once

// registerValidators adds the domain tags used in request payload binding tags.
func registerValidators() {
	validatorsOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			panic("server: gin binding engine is not a validator/v10 instance")
		}
		if err := registerDomainValidations(engine); err != nil {
			panic(err)
		}
	})
}

func registerDomainValidations(engine *validator.Validate) error {
	if err := engine.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		_, ok := tasks.ParsePriority(fl.Field().String())
		return ok
	}); err != nil {
		return fmt.Errorf("server: register priority validation: %w", err)
	}
	if err := engine.RegisterValidation("boardrole", func(fl validator.FieldLevel) bool {
		role, ok := boards.ParseRole(strings.ToUpper(strings.TrimSpace(fl.Field().String())))
		return ok && role != boards.RoleOwner
	}); err != nil {
		return fmt.Errorf("server: register boardrole validation: %w", err)
	}
	return nil
}
