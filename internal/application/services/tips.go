package services

import "math/rand"

var productivityTips = []string{
	"Break large tasks into smaller, manageable chunks to avoid overwhelm.",
	"Use the 2-minute rule: If it takes less than 2 minutes, do it now!",
	"Prioritize your tasks using the Eisenhower Matrix: urgent vs important.",
	"Take regular breaks to maintain focus and prevent burnout.",
	"Review and update your task list daily to stay organized.",
	"Celebrate small wins to maintain motivation and momentum.",
	"Focus on one task at a time to improve quality and efficiency.",
	"Set specific deadlines for your tasks to create accountability.",
}

// RandomTip returns one productivity tip
func RandomTip() string {
	return productivityTips[rand.Intn(len(productivityTips))]
}

// Tips returns all productivity tips
func Tips() []string {
	out := make([]string, len(productivityTips))
	copy(out, productivityTips)
	return out
}
