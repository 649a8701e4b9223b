package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidConfig = errors.New("config validation failed")

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRaw checks a merged RawConfig: struct tags first, then that every
// patch resolves to a reward and rules the engine accepts.
func ValidateRaw(cfg RawConfig) error {
	var errs []string

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for _, fe := range verrs {
			if fe.Param() != "" {
				errs = append(errs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			} else {
				errs = append(errs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
		}
	}

	if len(cfg.Patches) == 0 {
		errs = append(errs, "patches must name at least one patch")
	}

	// struct errors make conversion noise; report them alone
	if len(errs) == 0 {
		ids := make([]int, 0, len(cfg.Patches))
		for id := range cfg.Patches {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			pc := withDefaults(cfg.Patches[id], cfg.Defaults)
			if pc.Reward == nil {
				errs = append(errs, fmt.Sprintf("patches[%d].reward is required (no defaults.reward)", id))
			} else if _, err := pc.Reward.RewardSpec(); err != nil {
				errs = append(errs, fmt.Sprintf("patches[%d].reward: %v", id, err))
			}
			if _, err := pc.Rules.Rules(); err != nil {
				errs = append(errs, fmt.Sprintf("patches[%d].rules: %v", id, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}
