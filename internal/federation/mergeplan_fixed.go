package federation

import "iter"

// Fixed-arity plans keep the common small cases free of slices and maps.

type onePlan struct {
	planBase
	c1 Contribution
}

func (p *onePlan) ContributionCount() int { return 1 }

func (p *onePlan) ContributionFrom(source string) (Contribution, bool) {
	if p.c1.SourceName() == source {
		return p.c1, true
	}
	return nil, false
}

func (p *onePlan) IsSource(source string) bool { return p.c1.SourceName() == source }

func (p *onePlan) All() iter.Seq[Contribution] {
	return func(yield func(Contribution) bool) { yield(p.c1) }
}

func (p *onePlan) SourceNames() []string { return []string{p.c1.SourceName()} }

type twoPlan struct {
	planBase
	c1, c2 Contribution
}

func (p *twoPlan) ContributionCount() int { return 2 }

func (p *twoPlan) ContributionFrom(source string) (Contribution, bool) {
	switch source {
	case p.c1.SourceName():
		return p.c1, true
	case p.c2.SourceName():
		return p.c2, true
	}
	return nil, false
}

func (p *twoPlan) IsSource(source string) bool {
	_, ok := p.ContributionFrom(source)
	return ok
}

func (p *twoPlan) All() iter.Seq[Contribution] {
	return func(yield func(Contribution) bool) {
		_ = yield(p.c1) && yield(p.c2)
	}
}

func (p *twoPlan) SourceNames() []string { return sourceNames(p) }

type threePlan struct {
	planBase
	c1, c2, c3 Contribution
}

func (p *threePlan) ContributionCount() int { return 3 }

func (p *threePlan) ContributionFrom(source string) (Contribution, bool) {
	switch source {
	case p.c1.SourceName():
		return p.c1, true
	case p.c2.SourceName():
		return p.c2, true
	case p.c3.SourceName():
		return p.c3, true
	}
	return nil, false
}

func (p *threePlan) IsSource(source string) bool {
	_, ok := p.ContributionFrom(source)
	return ok
}

func (p *threePlan) All() iter.Seq[Contribution] {
	return func(yield func(Contribution) bool) {
		_ = yield(p.c1) && yield(p.c2) && yield(p.c3)
	}
}

func (p *threePlan) SourceNames() []string { return sourceNames(p) }

type fourPlan struct {
	planBase
	c1, c2, c3, c4 Contribution
}

func (p *fourPlan) ContributionCount() int { return 4 }

func (p *fourPlan) ContributionFrom(source string) (Contribution, bool) {
	switch source {
	case p.c1.SourceName():
		return p.c1, true
	case p.c2.SourceName():
		return p.c2, true
	case p.c3.SourceName():
		return p.c3, true
	case p.c4.SourceName():
		return p.c4, true
	}
	return nil, false
}

func (p *fourPlan) IsSource(source string) bool {
	_, ok := p.ContributionFrom(source)
	return ok
}

func (p *fourPlan) All() iter.Seq[Contribution] {
	return func(yield func(Contribution) bool) {
		_ = yield(p.c1) && yield(p.c2) && yield(p.c3) && yield(p.c4)
	}
}

func (p *fourPlan) SourceNames() []string { return sourceNames(p) }

type fivePlan struct {
	planBase
	c1, c2, c3, c4, c5 Contribution
}

func (p *fivePlan) ContributionCount() int { return 5 }

func (p *fivePlan) ContributionFrom(source string) (Contribution, bool) {
	switch source {
	case p.c1.SourceName():
		return p.c1, true
	case p.c2.SourceName():
		return p.c2, true
	case p.c3.SourceName():
		return p.c3, true
	case p.c4.SourceName():
		return p.c4, true
	case p.c5.SourceName():
		return p.c5, true
	}
	return nil, false
}

func (p *fivePlan) IsSource(source string) bool {
	_, ok := p.ContributionFrom(source)
	return ok
}

func (p *fivePlan) All() iter.Seq[Contribution] {
	return func(yield func(Contribution) bool) {
		_ = yield(p.c1) && yield(p.c2) && yield(p.c3) && yield(p.c4) && yield(p.c5)
	}
}

func (p *fivePlan) SourceNames() []string { return sourceNames(p) }

type sixPlan struct {
	planBase
	c1, c2, c3, c4, c5, c6 Contribution
}

func (p *sixPlan) ContributionCount() int { return 6 }

func (p *sixPlan) ContributionFrom(source string) (Contribution, bool) {
	switch source {
	case p.c1.SourceName():
		return p.c1, true
	case p.c2.SourceName():
		return p.c2, true
	case p.c3.SourceName():
		return p.c3, true
	case p.c4.SourceName():
		return p.c4, true
	case p.c5.SourceName():
		return p.c5, true
	case p.c6.SourceName():
		return p.c6, true
	}
	return nil, false
}

func (p *sixPlan) IsSource(source string) bool {
	_, ok := p.ContributionFrom(source)
	return ok
}

func (p *sixPlan) All() iter.Seq[Contribution] {
	return func(yield func(Contribution) bool) {
		_ = yield(p.c1) && yield(p.c2) && yield(p.c3) && yield(p.c4) && yield(p.c5) && yield(p.c6)
	}
}

func (p *sixPlan) SourceNames() []string { return sourceNames(p) }

var (
	_ MergePlan = (*onePlan)(nil)
	_ MergePlan = (*twoPlan)(nil)
	_ MergePlan = (*threePlan)(nil)
	_ MergePlan = (*fourPlan)(nil)
	_ MergePlan = (*fivePlan)(nil)
	_ MergePlan = (*sixPlan)(nil)
	_ MergePlan = (*multiPlan)(nil)
)
