package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core/fee"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db       *sql.DB
	feeSvc   fee.Service
	validate *validator.Validate
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  initfee -student ID -name NAME -cohort COHORT -amount AMOUNT [...] - initialize a student's fee record")
	fmt.Println("  stats [-cohort COHORT]                                             - print fee collection statistics")
	fmt.Println("  migrate COMMAND [args]                                             - run database migrations")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	initFeeCmd := flag.NewFlagSet("initfee", flag.ExitOnError)
	initFeeStudent := initFeeCmd.String("student", "", "The student's id.")
	initFeeName := initFeeCmd.String("name", "", "The student's full name.")
	initFeeCohort := initFeeCmd.String("cohort", "", "The student's cohort.")
	initFeeEmail := initFeeCmd.String("email", "", "The student's email address.")
	initFeeAmount := initFeeCmd.String("amount", "", "The full fee amount.")
	initFeeCurrency := initFeeCmd.String("currency", "USD", "The fee currency code.")
	initFeePlan := initFeeCmd.String("plan", fee.PlanFull, "The payment plan: full or installment.")
	initFeeInstallments := initFeeCmd.Int("installments", 0, "The installment count (installment plan only).")
	initFeeScholarship := initFeeCmd.String("scholarship", "", "The scholarship type: full or partial.")
	initFeePercentage := initFeeCmd.String("percentage", "", "The partial scholarship percentage.")

	statsCmd := flag.NewFlagSet("stats", flag.ExitOnError)
	statsCohort := statsCmd.String("cohort", "", "Limit statistics to one cohort.")

	switch args[1] {
	case "initfee":
		if err := initFeeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *initFeeStudent == "" || *initFeeName == "" || *initFeeCohort == "" || *initFeeAmount == "" {
			initFeeCmd.Usage()
			return errHelp
		}
		return cli.initFee(initFeeArgs{
			student:      *initFeeStudent,
			name:         *initFeeName,
			cohort:       *initFeeCohort,
			email:        *initFeeEmail,
			amount:       *initFeeAmount,
			currency:     *initFeeCurrency,
			plan:         *initFeePlan,
			installments: *initFeeInstallments,
			scholarship:  *initFeeScholarship,
			percentage:   *initFeePercentage,
		})
	case "stats":
		if err := statsCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.stats(*statsCohort)
	case "migrate":
		return cli.migrate(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

type initFeeArgs struct {
	student, name, cohort, email string
	amount, currency, plan       string
	installments                 int
	scholarship, percentage      string
}

func (cli *commandLine) initFee(args initFeeArgs) error {
	amount, err := decimal.NewFromString(args.amount)
	if err != nil {
		return fmt.Errorf("amount must be a number (got '%s')", args.amount)
	}

	nf := fee.NewStudentFee{
		StudentID:   args.student,
		StudentName: args.name,
		Cohort:      args.cohort,
		Email:       args.email,
		FeeStructure: fee.FeeStructure{
			FullAmount:  amount,
			Currency:    args.currency,
			PaymentPlan: args.plan,
		},
	}
	if args.installments > 0 {
		nf.FeeStructure.Installments = &fee.Installments{Count: args.installments}
	}
	if args.scholarship != "" {
		nf.Scholarship = fee.NewScholarship{
			HasScholarship: true,
			Type:           args.scholarship,
			Percentage:     args.percentage,
		}
	}
	if err := nf.Validate(cli.validate); err != nil {
		return err
	}

	rec, err := cli.feeSvc.Initialize(context.Background(), nf)
	if err != nil {
		return err
	}
	fmt.Printf("fee record initialized: student=%s due=%s status=%s\n", rec.StudentID, rec.AmountDue, rec.Status)
	return nil
}

func (cli *commandLine) stats(cohort string) error {
	stats, err := cli.feeSvc.Statistics(context.Background(), cohort)
	if err != nil {
		return err
	}
	fmt.Printf("students:          %d\n", stats.TotalStudents)
	fmt.Printf("fees expected:     %s\n", stats.TotalFeesExpected)
	fmt.Printf("collected:         %s\n", stats.TotalCollected)
	fmt.Printf("outstanding:       %s\n", stats.TotalOutstanding)
	fmt.Printf("collection rate:   %s%%\n", stats.CollectionRate.StringFixed(2))
	fmt.Printf("paid/partial/unpaid/overdue: %d/%d/%d/%d\n", stats.PaidCount, stats.PartialCount, stats.UnpaidCount, stats.OverdueCount)
	fmt.Printf("scholarships (full):         %d (%d)\n", stats.ScholarshipCount, stats.FullScholarshipCount)
	return nil
}
