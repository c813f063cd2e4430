package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"expense-approval/internal/model"
	"expense-approval/internal/repository"
	"expense-approval/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// SeedFile is the YAML layout read by seedroutes.
type SeedFile struct {
	Departments []DepartmentSeed `yaml:"departments"`
	Users       []UserSeed       `yaml:"users"`
	Routes      []RouteSeed      `yaml:"routes"`
}

type DepartmentSeed struct {
	Name string `yaml:"name"`
	Head string `yaml:"head"` // username
}

type UserSeed struct {
	Username   string `yaml:"username"`
	Email      string `yaml:"email"`
	FullName   string `yaml:"full_name"`
	Role       string `yaml:"role"`
	Department string `yaml:"department"`
}

type RouteSeed struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Department  string     `yaml:"department"`
	Steps       []StepSeed `yaml:"steps"`
}

// StepSeed names users and departments instead of ids. Amounts are strings to keep them exact.
type StepSeed struct {
	ApproverType          string `yaml:"approver_type"`
	Approver              string `yaml:"approver"`
	RoleName              string `yaml:"role_name"`
	Department            string `yaml:"department"`
	MinAmount             string `yaml:"min_amount"`
	MaxAmount             string `yaml:"max_amount"`
	Optional              bool   `yaml:"optional"`
	CanDelegate           bool   `yaml:"can_delegate"`
	AutoApproveIfSameUser bool   `yaml:"auto_approve_if_same_user"`
}

func parseSeed(r io.Reader) (*SeedFile, error) {
	var f SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

type seeder struct {
	users  repository.UserRepository
	routes service.RouteService
	logger *zap.Logger

	deptIDs map[string]uuid.UUID
	userIDs map[string]uuid.UUID
}

// seed creates whatever in f does not exist yet. Departments and users match by name,
// routes by name within their department, so running it twice is harmless.
func (s *seeder) seed(ctx context.Context, f *SeedFile) error {
	s.deptIDs = make(map[string]uuid.UUID)
	s.userIDs = make(map[string]uuid.UUID)

	for _, d := range f.Departments {
		dept, err := s.users.GetDepartmentByName(ctx, d.Name)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			dept = &model.Department{Name: d.Name}
			if err = s.users.CreateDepartment(ctx, dept); err == nil {
				s.logger.Info("department created", zap.String("name", d.Name))
			}
		}
		if err != nil {
			return fmt.Errorf("department %s: %w", d.Name, err)
		}
		s.deptIDs[d.Name] = dept.ID
	}

	for _, u := range f.Users {
		user, err := s.users.GetByUsername(ctx, u.Username)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = &model.User{Username: u.Username, Email: u.Email, FullName: u.FullName, Role: u.Role}
			if u.Department != "" {
				id, ok := s.deptIDs[u.Department]
				if !ok {
					return fmt.Errorf("user %s: unknown department %q", u.Username, u.Department)
				}
				user.DepartmentID = &id
			}
			if err = s.users.Create(ctx, user); err == nil {
				s.logger.Info("user created", zap.String("username", u.Username), zap.String("role", u.Role))
			}
		}
		if err != nil {
			return fmt.Errorf("user %s: %w", u.Username, err)
		}
		s.userIDs[u.Username] = user.ID
	}

	for _, d := range f.Departments {
		if d.Head == "" {
			continue
		}
		headID, ok := s.userIDs[d.Head]
		if !ok {
			return fmt.Errorf("department %s: unknown head %q", d.Name, d.Head)
		}
		if err := s.users.SetDepartmentHead(ctx, s.deptIDs[d.Name], headID); err != nil {
			return fmt.Errorf("department %s: set head: %w", d.Name, err)
		}
	}

	actor := uuid.Nil
	if admin, err := s.users.FirstWithRole(ctx, "admin"); err == nil {
		actor = admin.ID
	}

	for _, r := range f.Routes {
		deptID, ok := s.deptIDs[r.Department]
		if !ok {
			return fmt.Errorf("route %s: unknown department %q", r.Name, r.Department)
		}
		existing, err := s.routes.ListRoutes(ctx, &deptID)
		if err != nil {
			return fmt.Errorf("route %s: %w", r.Name, err)
		}
		if hasRoute(existing, r.Name) {
			s.logger.Info("route exists, skipped", zap.String("name", r.Name))
			continue
		}

		steps := make([]service.StepInput, 0, len(r.Steps))
		for i, st := range r.Steps {
			in, err := s.stepInput(st)
			if err != nil {
				return fmt.Errorf("route %s step %d: %w", r.Name, i+1, err)
			}
			steps = append(steps, in)
		}
		created, err := s.routes.CreateRoute(ctx, actor, service.CreateRouteDTO{
			Name:         r.Name,
			Description:  r.Description,
			DepartmentID: deptID.String(),
			Steps:        steps,
		})
		if err != nil {
			return fmt.Errorf("route %s: %w", r.Name, err)
		}
		s.logger.Info("route created", zap.String("name", r.Name), zap.String("id", created.ID), zap.Int("steps", len(created.Steps)))
	}
	return nil
}

func (s *seeder) stepInput(st StepSeed) (service.StepInput, error) {
	required := !st.Optional
	in := service.StepInput{
		ApproverType:          st.ApproverType,
		RoleName:              st.RoleName,
		IsRequired:            &required,
		CanDelegate:           st.CanDelegate,
		AutoApproveIfSameUser: st.AutoApproveIfSameUser,
	}
	if st.Approver != "" {
		id, ok := s.userIDs[st.Approver]
		if !ok {
			return in, fmt.Errorf("unknown approver %q", st.Approver)
		}
		v := id.String()
		in.ApproverUserID = &v
	}
	if st.Department != "" {
		id, ok := s.deptIDs[st.Department]
		if !ok {
			return in, fmt.Errorf("unknown department %q", st.Department)
		}
		v := id.String()
		in.ApproverDepartmentID = &v
	}
	var err error
	if in.MinAmount, err = amount(st.MinAmount); err != nil {
		return in, fmt.Errorf("min_amount: %w", err)
	}
	if in.MaxAmount, err = amount(st.MaxAmount); err != nil {
		return in, fmt.Errorf("max_amount: %w", err)
	}
	return in, nil
}

func amount(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func hasRoute(routes []service.RouteResponse, name string) bool {
	for _, r := range routes {
		if r.Name == name {
			return true
		}
	}
	return false
}
