package inference

import (
	"context"
	"strings"

	"github.com/roach88/lifeline/internal/api"
)

// Offline answers from a fixed table of first-aid topics. It never fails
// and needs no network.
type Offline struct{}

type topic struct {
	keywords []string
	advice   string
}

var topics = []topic{
	{
		keywords: []string{"bleed", "cut", "wound"},
		advice: "Apply firm, steady pressure to the wound with a clean cloth or bandage. " +
			"Keep the injured area raised if you can. If bleeding soaks through or will not stop, call emergency services.",
	},
	{
		keywords: []string{"burn", "scald"},
		advice: "Cool the burn under cool (not cold) running water for at least 10 minutes. " +
			"Remove rings or tight items nearby, then cover loosely with cling film or a clean dressing. Do not apply ice or butter.",
	},
	{
		keywords: []string{"chok"},
		advice: "If the person cannot cough, speak or breathe, call emergency services. " +
			"Give up to 5 firm back blows between the shoulder blades, then up to 5 abdominal thrusts, and repeat.",
	},
	{
		keywords: []string{"allerg", "anaphyla", "swelling", "epipen"},
		advice: "Watch for swelling of the face or throat, wheezing or dizziness. " +
			"If the person has a prescribed auto-injector, help them use it and call emergency services straight away.",
	},
	{
		keywords: []string{"asthma", "wheez", "inhaler"},
		advice: "Help the person sit upright and stay calm. Help them use their reliever inhaler. " +
			"If breathing does not improve within a few minutes, call emergency services.",
	},
	{
		keywords: []string{"faint", "unconscious", "passed out"},
		advice: "Check for breathing. If they are breathing, place them in the recovery position and stay with them. " +
			"If they are not breathing normally, call emergency services and start CPR if you are able.",
	},
	{
		keywords: []string{"sprain", "twist", "ankle"},
		advice: "Rest the joint, apply a cold pack wrapped in cloth for 15 to 20 minutes, use gentle compression, and keep it raised.",
	},
}

const fallbackAdvice = "I can help with basic first aid such as bleeding, burns, choking, allergic reactions, asthma and sprains. " +
	"Tell me what happened. If someone is seriously hurt or not breathing, call emergency services now."

func (Offline) Name() string { return "offline" }

func (Offline) Reply(ctx context.Context, _ []api.ChatMessage, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lower := strings.ToLower(message)
	for _, t := range topics {
		for _, k := range t.keywords {
			if strings.Contains(lower, k) {
				return WithDisclaimer(t.advice), nil
			}
		}
	}
	return WithDisclaimer(fallbackAdvice), nil
}
